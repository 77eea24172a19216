package escalation

import "github.com/convoflow/convoflow/pkg/models"

// RoutingBypassed reports whether automated routing must stand down for the
// session: while an escalation is pending or assigned, inbound messages go
// straight to the human channel instead of the supervisor.
func RoutingBypassed(status models.EscalationStatus) bool {
	return status == models.EscalationPending || status == models.EscalationAssigned
}
