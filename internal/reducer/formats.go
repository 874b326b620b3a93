package reducer

// Output encodings in descending order of preference.
var (
	firstPassEncodings = []string{
		"video/webm;codecs=vp9,opus",
		"video/webm;codecs=vp8,opus",
		"video/webm",
		"video/mp4",
	}

	retryEncodings = []string{
		"video/webm;codecs=vp8",
		"video/webm",
		"video/mp4",
	}
)

// Preferences returns the encoding preference list for an attempt.
func Preferences(attempt int) []string {
	if attempt == 0 {
		return firstPassEncodings
	}
	return retryEncodings
}

// selectEncoding returns the first supported encoding for the attempt.
func selectEncoding(enc Encoders, attempt int) (string, bool) {
	for _, mimeType := range Preferences(attempt) {
		if enc.Supported(mimeType) {
			return mimeType, true
		}
	}
	return "", false
}
