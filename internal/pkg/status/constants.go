package status

// Status represents a stage status reported in the event stream
type Status int

const (
	// Started value
	Started Status = iota + 1
	// Completed - final step
	Completed
)

var (
	statusName = map[Status]string{Started: "Processing started", Completed: "Processing completed"}
	nameStatus = map[string]Status{"Processing started": Started, "Processing completed": Completed}
)

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}
