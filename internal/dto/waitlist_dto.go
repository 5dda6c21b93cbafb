package dto

type SignupRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type SignupResponse struct {
	Message string `json:"message"`
	Note    string `json:"note,omitempty"`
}

type SendEmailRequest struct {
	Message   string   `json:"message"`
	Emails    []string `json:"emails"`
	Subject   string   `json:"subject"`
	SendToAll bool     `json:"sendToAll"`
}

type SendEmailResponse struct {
	Message    string `json:"message"`
	Recipients int    `json:"recipients"`
}

type TimerResponse struct {
	Timer   int    `json:"timer"`
	Days    int    `json:"days"`
	Message string `json:"message"`
}
