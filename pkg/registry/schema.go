// pkg/registry/schema.go
package registry

// ActivityRegistry describes the service tasks a process model may reference
// and the BPMN error codes each one can throw.
type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

type Activity struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"displayName"`
	Description     string   `json:"description"`
	Category        string   `json:"category"`
	Version         string   `json:"version"`
	TaskType        string   `json:"taskType"`
	InputVariables  []string `json:"inputVariables"`
	OutputVariables []string `json:"outputVariables"`
	ErrorCodes      []string `json:"errorCodes"`
	Timeout         string   `json:"timeout"`
	Retries         int      `json:"retries"`
	Tags            []string `json:"tags,omitempty"`
}
