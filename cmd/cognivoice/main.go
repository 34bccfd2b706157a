package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dimiro1/banner"

	"github.com/cognivoice/cognivoice-go/pkg/admin"
	"github.com/cognivoice/cognivoice-go/pkg/analysis"
	"github.com/cognivoice/cognivoice-go/pkg/auth"
	"github.com/cognivoice/cognivoice-go/pkg/cognivoice"
	"github.com/cognivoice/cognivoice-go/pkg/user"
)

const version = "dev"

const usage = `usage: cognivoice [-config path] <command> [args]

commands:
  login      -email -password
  register   -email -password -first -last
  logout
  analyze    <audio file>
  history    [-local] [-limit n]
  export     [-o file]
  profile    show | update | password | avatar
  admin      stats | activity | users | partners | export-users
`

func printBanner() {
	tpl := "{{ .Title \"CogniVoice\" \"\" 0 }}\nVersion: " + version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

func main() {
	configPath := flag.String("config", "", "config file path")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := cognivoice.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	client, err := cognivoice.NewClient(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, client, cfg, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *cognivoice.Client, cfg cognivoice.Config, cmd string, args []string) error {
	switch cmd {
	case "login":
		return cmdLogin(ctx, client.Auth, args)
	case "register":
		return cmdRegister(ctx, client.Auth, args)
	case "logout":
		if err := client.Auth.Logout(); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil
	case "analyze":
		return cmdAnalyze(ctx, client, cfg, args)
	case "history":
		return cmdHistory(ctx, client, args)
	case "export":
		return cmdExport(ctx, client.User, args)
	case "profile":
		return cmdProfile(ctx, client, args)
	case "admin":
		return cmdAdmin(ctx, client.Admin, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdLogin(ctx context.Context, svc *auth.Service, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	fs.Parse(args)

	u, err := svc.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s %s <%s>\n", u.FirstName, u.LastName, u.Email)
	return nil
}

func cmdRegister(ctx context.Context, svc *auth.Service, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	fs.Parse(args)

	u, err := svc.Register(ctx, auth.RegisterData{
		Email:     *email,
		Password:  *password,
		FirstName: *first,
		LastName:  *last,
	})
	if err != nil {
		return err
	}
	fmt.Printf("registered %s\n", u.Email)
	return nil
}

func cmdAnalyze(ctx context.Context, client *cognivoice.Client, cfg cognivoice.Config, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	quiet := fs.Bool("quiet", false, "suppress step output")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("analyze: exactly one audio file expected")
	}
	path := fs.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	printBanner()

	if client.Dashboard != nil {
		go func() {
			if err := client.Dashboard.Start(cfg.Dashboard.Address); err != nil {
				slog.Error("dashboard_failed", "error", err)
			}
		}()
		defer client.Dashboard.Shutdown(context.Background())
		fmt.Printf("dashboard on http://%s\n", cfg.Dashboard.Address)
	}

	var onStep func(step int)
	if !*quiet {
		onStep = func(step int) {
			fmt.Printf("  [%d/4] %s\n", step, analysis.StepLabel(step))
		}
	}

	rec, err := client.Analyze(ctx, f, filepath.Base(path), onStep)
	if err != nil {
		return err
	}

	fmt.Printf("\n%s\n", rec.ID)
	fmt.Printf("  prediction: %s (%.0f%% confidence)\n",
		rec.BackendData.FinalPrediction, rec.BackendData.Confidence*100)
	fmt.Printf("  risk level: %s\n", rec.RiskLevel)
	for _, r := range rec.Recommendations {
		fmt.Printf("  - %s\n", r)
	}
	return nil
}

func cmdHistory(ctx context.Context, client *cognivoice.Client, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	local := fs.Bool("local", false, "read the local store instead of the server")
	limit := fs.Int("limit", 0, "max records")
	fs.Parse(args)

	if *local {
		if client.Store == nil {
			return fmt.Errorf("history: no local store configured")
		}
		records, err := client.Store.List(*limit)
		if err != nil {
			return err
		}
		printRecords(records)
		return nil
	}

	records, err := client.User.History(ctx)
	if err != nil {
		return err
	}
	if *limit > 0 && len(records) > *limit {
		records = records[:*limit]
	}
	printRecords(records)
	return nil
}

func printRecords(records []analysis.Record) {
	for _, rec := range records {
		fmt.Printf("%s  %s  %s  %s (%.0f%%)\n",
			rec.Timestamp, rec.ID, rec.RiskLevel,
			rec.BackendData.FinalPrediction, rec.BackendData.Confidence*100)
	}
}

func cmdExport(ctx context.Context, svc *user.Service, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("o", "history.csv", "output file")
	fs.Parse(args)

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := svc.ExportHistory(ctx, f); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", *out)
	return nil
}

func cmdProfile(ctx context.Context, client *cognivoice.Client, args []string) error {
	if len(args) == 0 {
		args = []string{"show"}
	}
	switch args[0] {
	case "show":
		u := client.Session().User()
		if u == nil {
			return fmt.Errorf("profile: not logged in")
		}
		fmt.Printf("%s %s <%s> role=%s\n", u.FirstName, u.LastName, u.Email, u.Role)
		return nil

	case "update":
		fs := flag.NewFlagSet("profile update", flag.ExitOnError)
		first := fs.String("first", "", "first name")
		last := fs.String("last", "", "last name")
		email := fs.String("email", "", "email")
		fs.Parse(args[1:])
		if err := client.User.UpdateProfile(ctx, user.Profile{
			FirstName: *first,
			LastName:  *last,
			Email:     *email,
		}); err != nil {
			return err
		}
		fmt.Println("profile updated")
		return nil

	case "password":
		fs := flag.NewFlagSet("profile password", flag.ExitOnError)
		current := fs.String("current", "", "current password")
		next := fs.String("new", "", "new password")
		fs.Parse(args[1:])
		if err := client.User.ChangePassword(ctx, user.PasswordChange{
			CurrentPassword: *current,
			NewPassword:     *next,
			ConfirmPassword: *next,
		}); err != nil {
			return err
		}
		fmt.Println("password changed")
		return nil

	case "avatar":
		fs := flag.NewFlagSet("profile avatar", flag.ExitOnError)
		fs.Parse(args[1:])
		if fs.NArg() != 1 {
			return fmt.Errorf("profile avatar: image file expected")
		}
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		url, err := client.User.UploadAvatar(ctx, filepath.Base(fs.Arg(0)), f)
		if err != nil {
			return err
		}
		fmt.Printf("avatar uploaded: %s\n", url)
		return nil

	default:
		return fmt.Errorf("profile: unknown subcommand %q", args[0])
	}
}

func cmdAdmin(ctx context.Context, svc *admin.Service, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("admin: subcommand expected")
	}
	switch args[0] {
	case "stats":
		stats, err := svc.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("users: %d  analyses: %d\n", stats.TotalUsers, stats.TotalAnalyses)
		fmt.Printf("risk distribution: low=%d moderate=%d high=%d\n",
			stats.RiskDistribution.Low, stats.RiskDistribution.Moderate, stats.RiskDistribution.High)
		for _, day := range stats.DailyUsage {
			fmt.Printf("  %s  analyses=%d users=%d\n", day.Date, day.Analyses, day.Users)
		}
		return nil

	case "activity":
		items, err := svc.RecentActivity(ctx)
		if err != nil {
			return err
		}
		for _, item := range items {
			fmt.Printf("%s  %s  %s  %s\n", item.Timestamp, item.Type, item.UserName, item.Details)
		}
		return nil

	case "users":
		users, err := svc.Users(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Printf("%s  %s %s <%s>  %s\n", u.ID, u.FirstName, u.LastName, u.Email, u.Role)
		}
		return nil

	case "partners":
		partners, err := svc.Partners(ctx)
		if err != nil {
			return err
		}
		for _, p := range partners {
			fmt.Printf("%s  %s  %s\n", p.ID, p.Name, p.ContactEmail)
		}
		return nil

	case "export-users":
		fs := flag.NewFlagSet("admin export-users", flag.ExitOnError)
		out := fs.String("o", "users.csv", "output file")
		fs.Parse(args[1:])
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := svc.ExportUsers(ctx, f); err != nil {
			return err
		}
		fmt.Printf("exported to %s\n", *out)
		return nil

	default:
		return fmt.Errorf("admin: unknown subcommand %q", args[0])
	}
}
