package validation

// Common enum values used across the production entry handlers.
var (
	ValidShifts           = []string{"Day", "Night"}
	ValidDispatchStatuses = []string{"Yes", "No"}
	ValidSizingStatuses   = []string{"Yes", "No"}
	ValidUserRoles        = []string{"admin", "supervisor", "operator"}
	ValidOperatorRoles    = []string{"Warper", "Sizer", "Grey Weaver", "Grey Reliever", "Grey Foreman", "Grey QC"}
)
