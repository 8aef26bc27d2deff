package models

const (
	MessageAccepted            = "Accepted"
	MessageInvalidRequestBody  = "Invalid request body"
	MessageInternalServerError = "Internal Server Error"
)

// APIResponse is the body returned by the submission endpoint for every outcome.
type APIResponse struct {
	StatusCode int    `json:"statusCode"`
	ActivityID string `json:"activityId"`
	Message    string `json:"message"`
}

func NewAPIResponse(statusCode int, activityID, message string) APIResponse {
	return APIResponse{
		StatusCode: statusCode,
		ActivityID: activityID,
		Message:    message,
	}
}
