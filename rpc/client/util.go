package client

import (
	"github.com/ValentinKolb/dSD/rpc/serializer"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// responseSerializer returns the serializer matching the content type of a response.
// Peers may answer with a different serializer than requested, unknown content types
// fall back to the given serializer.
func responseSerializer(contentType string, fallback serializer.IEntrySerializer) serializer.IEntrySerializer {
	if contentType == "" || contentType == fallback.ContentType() {
		return fallback
	}
	s, err := serializer.FromContentType(contentType)
	if err != nil {
		Logger.Debugf("Unknown response content type %q, using %s", contentType, fallback.ContentType())
		return fallback
	}
	return s
}
