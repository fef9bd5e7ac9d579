package sosv1connect

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
	"github.com/klauspost/compress/gzip"
)

// CodecName is registered under the name connect uses for JSON, so the
// Content-Type stays application/json on the wire.
const CodecName = "json"

var _ connect.Codec = Codec{}

// Codec marshals the plain Go messages of the sos.v1 service as JSON.
type Codec struct{}

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to decode %T: %w", msg, err)
	}
	return nil
}

const compressionGzip = "gzip"

func newGzipDecompressor() connect.Decompressor {
	return &gzip.Reader{}
}

func newGzipCompressor() connect.Compressor {
	return gzip.NewWriter(nil)
}

// WithGzipHandler replaces the default gzip implementation on handlers.
func WithGzipHandler() connect.HandlerOption {
	return connect.WithCompression(compressionGzip, newGzipDecompressor, newGzipCompressor)
}

// WithGzipClient compresses requests and accepts compressed responses.
func WithGzipClient() connect.ClientOption {
	return connect.WithClientOptions(
		connect.WithAcceptCompression(compressionGzip, newGzipDecompressor, newGzipCompressor),
		connect.WithSendCompression(compressionGzip),
	)
}
