package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricRunCompleted    = "FloodRunCompleted"
	MetricRunFailed       = "FloodRunFailed"
	MetricRunDuration     = "FloodRunDuration"
	MetricSimIterations   = "FloodSimulationIterations"
	MetricFloodedAreaKm2  = "FloodedAreaKm2"
	MetricPeakRunoffCFS   = "PeakRunoffCFS"
	MetricAPILatency      = "APILatency"
	MetricAPIRequestCount = "APIRequestCount"

	// Dimension Keys
	DimAlgorithm = "Algorithm"
	DimErrorCode = "ErrorCode"
	DimEndpoint  = "Endpoint"
	DimStatus    = "Status"

	// Metric Namespace
	MetricNamespace = "FloodFactor"
)
