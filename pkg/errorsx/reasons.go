package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonGatewayRequest ReasonCode = "gateway_request"
	ReasonGatewayStatus  ReasonCode = "gateway_status"
	ReasonGatewayDecode  ReasonCode = "gateway_decode"

	ReasonUpload        ReasonCode = "upload"
	ReasonStreamConnect ReasonCode = "stream_connect"
	ReasonStreamDecode  ReasonCode = "stream_decode"
	ReasonAnalysis      ReasonCode = "analysis_failed"
	ReasonAborted       ReasonCode = "submission_aborted"

	ReasonAuth  ReasonCode = "auth"
	ReasonStore ReasonCode = "store"
)
