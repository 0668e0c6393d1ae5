package response

// StatusCode is an HTTP status code. Any value from 100 to 599 can be sent;
// the constants cover the ones hearth and its handlers produce.
type StatusCode int

const (
	StatusOK        StatusCode = 200
	StatusCreated   StatusCode = 201
	StatusAccepted  StatusCode = 202
	StatusNoContent StatusCode = 204

	StatusNotModified StatusCode = 304

	StatusBadRequest       StatusCode = 400
	StatusUnauthorized     StatusCode = 401
	StatusForbidden        StatusCode = 403
	StatusNotFound         StatusCode = 404
	StatusMethodNotAllowed StatusCode = 405
	StatusPayloadTooLarge  StatusCode = 413
	StatusImATeapot        StatusCode = 418

	StatusInternalServerError StatusCode = 500
	StatusServiceUnavailable  StatusCode = 503
)

var reasonPhrases = map[StatusCode]string{
	StatusOK:        "OK",
	StatusCreated:   "Created",
	StatusAccepted:  "Accepted",
	StatusNoContent: "No Content",

	StatusNotModified: "Not Modified",

	StatusBadRequest:       "Bad Request",
	StatusUnauthorized:     "Unauthorized",
	StatusForbidden:        "Forbidden",
	StatusNotFound:         "Not Found",
	StatusMethodNotAllowed: "Method Not Allowed",
	StatusPayloadTooLarge:  "Content Too Large",
	StatusImATeapot:        "I'm a teapot",

	StatusInternalServerError: "Internal Server Error",
	StatusServiceUnavailable:  "Service Unavailable",
}

var classPhrases = [...]string{"Informational", "Success", "Redirection", "Client Error", "Server Error"}

// GetStatusReason returns the reason phrase for s. Codes without a phrase of
// their own get the name of their class, e.g. "Client Error" for 422, and
// codes outside 100-599 get "Unknown".
func GetStatusReason(s StatusCode) string {
	if reason, ok := reasonPhrases[s]; ok {
		return reason
	}
	if s < 100 || s > 599 {
		return "Unknown"
	}
	return classPhrases[s/100-1]
}
