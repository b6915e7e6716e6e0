package controller

import (
	"github.com/opst/mlcommons/pkg/action"
	ctrl "github.com/opst/mlcommons/pkg/domain/controller"
)

// Names are action names of a controller family.
type Names struct {
	Create   string
	Get      string
	Update   string
	Delete   string
	Deploy   string
	Undeploy string
}

// NamesOf returns action names for the family.
func NamesOf(f ctrl.Family) Names {
	if f == ctrl.Legacy {
		return Names{
			Create:   action.ControllerCreate,
			Get:      action.ControllerGet,
			Update:   action.ControllerUpdate,
			Delete:   action.ControllerDelete,
			Deploy:   action.ControllerDeploy,
			Undeploy: action.ControllerUndeploy,
		}
	}
	return Names{
		Create:   action.ModelControllerCreate,
		Get:      action.ModelControllerGet,
		Update:   action.ModelControllerUpdate,
		Delete:   action.ModelControllerDelete,
		Deploy:   action.ModelControllerDeploy,
		Undeploy: action.ModelControllerUndeploy,
	}
}
