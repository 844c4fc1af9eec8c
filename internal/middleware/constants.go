package middleware

// ContextKeyUserID is the Gin context key the proxy's token classification
// sets once a request is authenticated, consumed by StructuredLogger for
// log correlation.
const ContextKeyUserID = "user_id"
