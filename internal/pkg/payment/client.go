package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"
)

const maxProviderResponseBytes = 1 << 20

func newProviderHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 15 * time.Second,
	}
}

// doWithRetry performs an outbound provider call with a single retry on
// transport-level failure. Provider responses, including rejections, are
// never retried here; only errors where no response was received at all.
// Requests built with http.NewRequestWithContext over a bytes.Reader carry
// GetBody, which makes the replay safe.
func doWithRetry(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err == nil {
		return resp, nil
	}
	if req.GetBody != nil {
		body, bodyErr := req.GetBody()
		if bodyErr != nil {
			return nil, err
		}
		req.Body = body
	} else if req.Body != nil {
		// Body already consumed and not replayable.
		return nil, err
	}
	return client.Do(req)
}

func readProviderBody(resp *http.Response) []byte {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseBytes))
	return body
}

// PayloadHash fingerprints a raw webhook body for event records.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
