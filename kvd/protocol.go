package kvd

// JSON protocol spoken between provider/remote and the kvd service.
// Values travel as []byte (base64 in JSON) so framed binary payloads survive.

const (
	PathKV     = "/v1/kv"
	PathKeys   = "/v1/kv/keys"
	PathIncr   = "/v1/kv/incr"
	PathHealth = "/healthz"
)

type PutRequest struct {
	Key        string `json:"key" binding:"required"`
	Value      []byte `json:"value"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"`
}

type ValueResponse struct {
	Value []byte `json:"value"`
}

type KeysResponse struct {
	Keys []string `json:"keys"`
}

type RemovedResponse struct {
	Removed int `json:"removed"`
}

type IncrRequest struct {
	Key   string `json:"key" binding:"required"`
	Delta int64  `json:"delta"`
}

type IncrResponse struct {
	Value int64 `json:"value"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
