// Package sim runs evaluation episodes: one world, one task, one pressure body and
// one controller, stepped for a fixed tick budget.
package sim

import (
	"github.com/pthm-cable/squish/body"
	"github.com/pthm-cable/squish/controller"
)

// Agent couples a body with the controller that drives it.
type Agent struct {
	Body       *body.Pressure
	Controller controller.Controller
}

// Act senses, computes a control vector for tick t and applies it, in that order.
func (a *Agent) Act(t int) error {
	obs := a.Body.Observe()
	control := a.Controller.Control(t, obs)
	return a.Body.ApplyControl(control)
}
