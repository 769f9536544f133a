package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractID(t *testing.T) {
	body := []byte(`{"json":{"errors":[],"data":{"things":[{"data":{"name":"t1_abc"}}]}}}`)
	assert.Equal(t, "t1_abc", ExtractID(body, "json", "data", "things", "0", "data", "name"))
	assert.Equal(t, UnknownReplyID, ExtractID(body, "json", "data", "things", "1", "data", "name"))
	assert.Equal(t, UnknownReplyID, ExtractID(body, "json", "missing"))
	assert.Equal(t, UnknownReplyID, ExtractID([]byte(`not json`), "id"))
	assert.Equal(t, UnknownReplyID, ExtractID([]byte(`{"id":42}`), "id"))
	assert.Equal(t, "99", ExtractID([]byte(`{"id":"99"}`), "id"))
}
