package version

// Version is the current version of the speaker diarizer
const Version = "0.3.0"

// UserAgent returns the User-Agent string for outgoing requests
func UserAgent() string {
	return "speaker-diarizer/" + Version
}

// ServerHeader returns the Server header value for HTTP responses
func ServerHeader() string {
	return "speaker-diarizer/" + Version
}
