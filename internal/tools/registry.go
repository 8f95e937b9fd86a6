package tools

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/aalghamdi/voicedesk/internal/store"
)

// Domain binds a use-case identifier to its tool server: record spec, tool
// constructor and default listen address. The mapping is a closed enumeration
// so an unknown use case is caught at configuration time, not at runtime.
type Domain struct {
	UseCase    string
	ServerName string
	Spec       store.Spec
	BindAddr   string
	NewTool    func(Recorder, *slog.Logger) Tool
}

var domains = map[string]Domain{
	"hospitality": {
		UseCase:    "hospitality",
		ServerName: "Hospitality Tools",
		Spec:       store.BookingSpec(),
		BindAddr:   ":8001",
		NewTool:    NewBookingTool,
	},
	"medical": {
		UseCase:    "medical",
		ServerName: "Medical Tools",
		Spec:       store.AppointmentSpec(),
		BindAddr:   ":8002",
		NewTool:    NewAppointmentTool,
	},
	"education": {
		UseCase:    "education",
		ServerName: "Education Tools",
		Spec:       store.EnrollmentSpec(),
		BindAddr:   ":8003",
		NewTool:    NewEnrollmentTool,
	},
	"hr": {
		UseCase:    "hr",
		ServerName: "HR Tools",
		Spec:       store.HRRequestSpec(),
		BindAddr:   ":8004",
		NewTool:    NewHRRequestTool,
	},
}

// ForUseCase looks up the tool domain for a use-case identifier.
func ForUseCase(id string) (Domain, error) {
	d, ok := domains[id]
	if !ok {
		return Domain{}, fmt.Errorf("no tool domain for use case %q", id)
	}
	return d, nil
}

// Domains returns all registered tool domains, sorted by use case.
func Domains() []Domain {
	out := make([]Domain, 0, len(domains))
	for _, d := range domains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UseCase < out[j].UseCase })
	return out
}
