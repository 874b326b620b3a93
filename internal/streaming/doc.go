/*
Package streaming provides timeout-protected writers for HTTP responses.

Reduced videos are held in memory and can be several megabytes. A client that
stops reading would otherwise pin the handler goroutine and the blob. The
TimeoutWriter splits writes into chunks, bounds each chunk by WriteTimeout,
and stops as soon as the request context is canceled.

# Usage

	err := streaming.WriteBlob(r.Context(), w, result.Data, result.MimeType,
		streaming.DefaultTimeoutWriterConfig())
	if err != nil && !errors.Is(err, streaming.ErrClientGone) {
		logging.Warn("failed to send result: %v", err)
	}

StreamWithTimeout does the same for an arbitrary io.Reader when the length
is not known up front.

# Errors

  - ErrWriteTimeout: a chunk could not be written within WriteTimeout
  - ErrClientGone: the request context was canceled
  - ErrStreamCanceled: the writer was closed
*/
package streaming
