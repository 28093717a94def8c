package httpdto

// Envelope is embedded in every response body so its fields are flattened
// next to the payload: {"success":true, ...payload} or
// {"success":false,"message":"...","code":"..."}.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

func OK() Envelope {
	return Envelope{Success: true}
}

func NewErrorResponse(message string, code string) Envelope {
	return Envelope{
		Success: false,
		Message: message,
		Code:    code,
	}
}
