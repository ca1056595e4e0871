package nodes

// Node keys of the turn graph.
const (
	NodeAdmission      = "Admission"
	NodeThrottled      = "Throttled"
	NodeHydrate        = "Hydrate"
	NodeDialog         = "Dialog"
	NodeReply          = "Reply"
	NodeFallbackPrompt = "FallbackPrompt"
	NodeOracle         = "Oracle"
	NodeOracleReply    = "OracleReply"
	NodeDeliver        = "Deliver"
	NodePersist        = "Persist"
)

const (
	IntentThrottled = "throttled"
	IntentOracle    = "fallback_oracle"
)
