package models

// HealthData represents health check response data
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Health status"`
	Message string `json:"message" example:"API is healthy" doc:"Health message"`
}

// HealthResponse represents the HTTP response for health check
type HealthResponse struct {
	Body HealthData
}

// VersionData represents version information response data
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2026-10-18T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Operating system and architecture"`
}

// VersionResponse represents the HTTP response for version information
type VersionResponse struct {
	Body VersionData
}

// StartInstancesData is the body of a start request. Empty fields fall back
// to the configured [daemon] defaults.
type StartInstancesData struct {
	ExecutablePath string `json:"executable_path,omitempty" example:"/opt/tor/tor" doc:"Path to the daemon executable"`
	Count          string `json:"count,omitempty" example:"3" doc:"Number of instances to start, as entered by the operator"`
}

// StartInstancesRequest represents the HTTP request for starting a batch.
type StartInstancesRequest struct {
	Wait bool `query:"wait" doc:"Block until the batch has settled and return its result"`
	Body StartInstancesData
}

// BatchData describes a start batch.
type BatchData struct {
	State     string   `json:"state" example:"starting" doc:"Supervisor state after the request"`
	Requested int      `json:"requested" example:"3" doc:"Instances requested"`
	Launched  int      `json:"launched,omitempty" example:"3" doc:"Instances spawned (wait=true only)"`
	Survivors int      `json:"survivors,omitempty" example:"2" doc:"Instances alive after the settle delay (wait=true only)"`
	Endpoints []string `json:"endpoints,omitempty" example:"[\"socks5://127.0.0.1:9050\"]" doc:"Proxy endpoints (wait=true only)"`
	Errors    []string `json:"errors,omitempty" doc:"Per-instance failures (wait=true only)"`
}

// BatchResponse is 202 for a queued batch and 200 for a finished one.
type BatchResponse struct {
	Status int
	Body   BatchData
}

// InstanceData describes one registered instance.
type InstanceData struct {
	Index         int    `json:"index" example:"0" doc:"Instance index"`
	SOCKSPort     int    `json:"socks_port" example:"9050" doc:"SOCKS listener port"`
	ControlPort   int    `json:"control_port" example:"9151" doc:"Control listener port"`
	DataDirectory string `json:"data_directory" example:"/opt/tor/TorData/Data_9050" doc:"Instance data directory"`
	Endpoint      string `json:"endpoint" example:"socks5://127.0.0.1:9050" doc:"Proxy endpoint"`
	PID           int    `json:"pid,omitempty" example:"4242" doc:"Operating system process id"`
	Alive         bool   `json:"alive" doc:"Whether the process is running"`
	Bootstrap     int    `json:"bootstrap" example:"100" doc:"Last reported bootstrap percentage, -1 if none yet"`
	StartedAt     string `json:"started_at,omitempty" example:"2026-10-18T10:30:00Z" doc:"Spawn time"`
}

// InstanceListData is the fleet status.
type InstanceListData struct {
	State     string         `json:"state" example:"running" doc:"Supervisor state"`
	Running   bool           `json:"running" doc:"Whether at least one instance is alive"`
	Endpoints []string       `json:"endpoints" doc:"Endpoints of live instances"`
	Instances []InstanceData `json:"instances" doc:"Registered instances"`
}

// InstanceListResponse represents the HTTP response for fleet status.
type InstanceListResponse struct {
	Body InstanceListData
}

// StopData describes a stop-all sweep.
type StopData struct {
	Found  int      `json:"found" example:"3" doc:"Processes found by name"`
	Killed int      `json:"killed" example:"3" doc:"Processes terminated"`
	Failed int      `json:"failed" example:"0" doc:"Processes that could not be terminated"`
	Errors []string `json:"errors,omitempty" doc:"Termination failures"`
}

// StopResponse represents the HTTP response for stop-all.
type StopResponse struct {
	Body StopData
}

// PlanRequest asks for the allocation of count instances.
type PlanRequest struct {
	Count          int    `query:"count" required:"true" minimum:"1" example:"3" doc:"Number of instances"`
	ExecutablePath string `query:"executable_path" doc:"Executable whose directory holds the data directories"`
}

// PlanData is an allocation preview.
type PlanData struct {
	MaxInstances int            `json:"max_instances" example:"101" doc:"Largest count accepted"`
	Instances    []InstanceData `json:"instances" doc:"Planned instances"`
}

// PlanResponse represents the HTTP response for an allocation preview.
type PlanResponse struct {
	Body PlanData
}

// LogsRequest selects the order of returned lines.
type LogsRequest struct {
	Order string `query:"order" enum:"newest,oldest" default:"oldest" doc:"Line order"`
}

// LogStreamRequest lets a reconnecting client resume after the last line it saw.
type LogStreamRequest struct {
	LastEventID uint64 `header:"Last-Event-ID" doc:"Sequence number of the last received line"`
}

// LogsData holds formatted operator log lines.
type LogsData struct {
	Count int      `json:"count" example:"2" doc:"Number of lines"`
	Lines []string `json:"lines" example:"[\"[10:30:00] Starting 3 tor instance(s)\"]" doc:"Formatted lines"`
}

// LogsResponse represents the HTTP response for the operator log.
type LogsResponse struct {
	Body LogsData
}
