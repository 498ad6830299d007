package stratum

// request is a Stratum V1 JSON-RPC request, sent outbound (subscribe,
// authorize, submit, ...) and also the shape `mining.notify` and
// `client.reconnect` arrive in as unsolicited inbound calls.
type request struct {
	ID     uint          `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// response answers a previously sent request, correlated by ID.
type response struct {
	ID     uint        `json:"id"`
	Result interface{} `json:"result"`
	Error  *rpcError   `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	methodConfigure     = "mining.configure"
	methodSubscribe     = "mining.subscribe"
	methodAuthorize     = "mining.authorize"
	methodSuggestDiff   = "mining.suggest_difficulty"
	methodNotify        = "mining.notify"
	methodSetDifficulty = "mining.set_difficulty"
	methodSetVersionMask = "mining.set_version_mask"
	methodReconnect     = "client.reconnect"
	methodSubmit        = "mining.submit"

	errCodeJobNotFound = 21
)
