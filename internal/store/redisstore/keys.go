package redisstore

const (
	KeyWallet      = "wallet:%d"
	KeyBet         = "bet:%s"
	KeyBetEntry    = "bet:%s:entry:%s"
	KeyOpenBets    = "bets:open"
	KeyUserBets    = "user:%d:bets"
	KeyUserLedger  = "user:%d:ledger"
	KeySeed        = "seed:%s"
	KeySeedActive  = "seed:active:%d:%s"
	KeySeedRetired = "seed:retired:%d:%s"
	KeyRateLimit   = "ratelimit:%d:%s"

	// History lists are trimmed to this length.
	MaxHistory = 1000

	maxTxRetries = 100
)
