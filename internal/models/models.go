package models

// APIResponse is the standard JSON envelope for all API responses.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

// Meta contains pagination metadata.
type Meta struct {
	Total int `json:"total,omitempty"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

// Order is one orderbook row. Field names follow the office spreadsheet
// headings verbatim; the orderbook files are shared with the office side
// and the keys must survive a round trip untouched.
type Order struct {
	OfficeDate        string  `json:"Office Date"`
	OfficeOrderNo     string  `json:"Office Order No"`
	DateOfOffice      string  `json:"Date of Office"`
	TempOrderNo       string  `json:"Temp. Order No."`
	OrderNo           string  `json:"Order No."`
	ComboNo           string  `json:"Combo No."`
	DesignNo          string  `json:"Design No."`
	YarnDyeingPlant   string  `json:"Yarn Dyeing Plant"`
	YarnDyeingDate    string  `json:"Yarn Dyeing Date"`
	YarnDyeingOrderNo string  `json:"Yarn Dyeing Order No."`
	Quality           string  `json:"Quality"`
	FactoryOrderM     float64 `json:"Factory Order (Meters)"`
	WarpingLocation   string  `json:"Warping Location"`
	WeavingLocation   string  `json:"Weaving Location"`
	WarpCount         string  `json:"Warp Count"`
	WeftCount         string  `json:"Weft Count"`
	Reed              string  `json:"Reed"`
	Pick              string  `json:"Pick"`
	RSOnLoom          string  `json:"RS on Loom"`
	Weave             string  `json:"Weave"`
	Shafts            string  `json:"Shafts"`
	WarpShades        string  `json:"Warp Shades"`
	WeftShades        string  `json:"Weft Shades"`
	PartyName         string  `json:"Party Name"`
	PartyQuantityM    float64 `json:"Party Quantity (Meters)"`
	FinishingReqs     string  `json:"Finishing Requirements"`
	Selvedge          string  `json:"Selvedge"`
	DeliveryDate      string  `json:"Delivery Date"`
	Timestamp         string  `json:"timestamp,omitempty"`
	UploadFilename    string  `json:"upload_filename,omitempty"`
}

// WarpingProduction records one warped beam. beam_no is unique across
// the mill.
type WarpingProduction struct {
	OrderNo            string  `json:"order_no"`
	DesignNo           string  `json:"design_no"`
	TotalOrderQuantity float64 `json:"total_order_quantity"`
	MachineNo          string  `json:"machine_no"`
	BeamNo             string  `json:"beam_no"`
	Quantity           float64 `json:"quantity"`
	WarperName         string  `json:"warper_name"`
	StartDatetime      string  `json:"start_datetime"`
	EndDatetime        string  `json:"end_datetime"`
	RPM                float64 `json:"rpm"`
	Sections           float64 `json:"sections"`
	Breakages          float64 `json:"breakages"`
	Comments           string  `json:"comments"`
	WarpingTimeMinutes float64 `json:"warping_time_minutes"`
	Efficiency         float64 `json:"efficiency"`
	Timestamp          string  `json:"timestamp"`
}

// WarpingDispatch marks a beam handed from warping to sizing. One record
// per beam; a later dispatch for the same beam updates in place.
type WarpingDispatch struct {
	Date           string `json:"date"`
	BeamNo         string `json:"beam_no"`
	DispatchStatus string `json:"dispatch_status"`
	Timestamp      string `json:"timestamp"`
}

// SizingProduction records a sizing run for a beam. A beam is sized at
// most once.
type SizingProduction struct {
	BeamNo        string  `json:"beam_no"`
	Status        string  `json:"status"`
	SizerName     string  `json:"sizer_name"`
	StartDatetime string  `json:"start_datetime"`
	EndDatetime   string  `json:"end_datetime"`
	RF            float64 `json:"rf"`
	Moisture      float64 `json:"moisture"`
	Speed         float64 `json:"speed"`
	Comments      string  `json:"comments"`
	Timestamp     string  `json:"timestamp"`
}

// SizingDispatch marks a beam handed from sizing to weaving. Upsert
// semantics like WarpingDispatch.
type SizingDispatch struct {
	Date           string `json:"date"`
	BeamNo         string `json:"beam_no"`
	DispatchStatus string `json:"dispatch_status"`
	Timestamp      string `json:"timestamp"`
}

// InitiateBeam binds a beam to a (location, loom) pair.
type InitiateBeam struct {
	Location      string `json:"location"`
	BeamNo        string `json:"beam_no"`
	LoomNo        int    `json:"loom_no"`
	StartDatetime string `json:"start_datetime"`
	Timestamp     string `json:"timestamp"`
}

// BeamEvent is one entry in the append-only beam_on_loom log. The
// current state of a beam or loom is the status of its most recent
// event by timestamp.
type BeamEvent struct {
	BeamNo    string `json:"beam_no"`
	LoomNo    int    `json:"loom_no"`
	Location  string `json:"location"`
	Status    string `json:"status"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

// GreyProduction records one finished grey fabric piece.
type GreyProduction struct {
	Date             string  `json:"date"`
	PieceNo          string  `json:"piece_no"`
	LoomNo           int     `json:"loom_no"`
	DesignNo         string  `json:"design_no"`
	ProductionMeters float64 `json:"production_meters"`
	ProductionWeight float64 `json:"production_weight"`
	Remarks          string  `json:"remarks"`
	Timestamp        string  `json:"timestamp"`
}

// GreyDispatch is a copy of the dispatched piece's production record
// plus dispatch metadata.
type GreyDispatch struct {
	GreyProduction
	DispatchDate    string `json:"dispatch_date"`
	DispatchRemarks string `json:"dispatch_remarks"`
}

// LoomProduction is one shift's weaving output for a loom.
type LoomProduction struct {
	Date             string  `json:"date"`
	Shift            string  `json:"shift"`
	ShiftTiming      string  `json:"shift_timing"`
	Location         string  `json:"location"`
	LoomNo           int     `json:"loom_no"`
	DesignNo         string  `json:"design_no"`
	OrderNo          string  `json:"order_no"`
	Reed             string  `json:"reed"`
	RPM              float64 `json:"rpm"`
	PPI              float64 `json:"ppi"`
	Reading          float64 `json:"reading"`
	Warp             string  `json:"warp"`
	Weft             string  `json:"weft"`
	Efficiency       float64 `json:"efficiency"`
	ShiftHours       int     `json:"shift_hours"`
	ShiftMinutes     int     `json:"shift_minutes"`
	ShiftTime        float64 `json:"shift_time"`
	ProductionMeters float64 `json:"production_meters"`
	LossMeters       float64 `json:"loss_meters"`
	WeaverName       string  `json:"weaver_name"`
	RelieverName     string  `json:"reliever_name"`
	Foreman          string  `json:"foreman"`
	QCChecker        string  `json:"qc_checker"`
	Comments         string  `json:"comments"`
	Timestamp        string  `json:"timestamp"`
}

// Operator is a mill-floor worker and the production roles they hold
// (Warper, Sizer, Grey Weaver, Grey Reliever, Grey Foreman, Grey QC).
type Operator struct {
	Name      string   `json:"name"`
	Roles     []string `json:"roles"`
	Timestamp string   `json:"timestamp"`
}

// User is a login account (stored in SQLite, not in a collection).
type User struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Active      bool   `json:"active"`
	LastLogin   string `json:"last_login,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// AuditEntry is one row of the mutation audit log.
type AuditEntry struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Action    string `json:"action"`
	Module    string `json:"module"`
	RecordID  string `json:"record_id"`
	Summary   string `json:"summary"`
	Timestamp string `json:"timestamp"`
}
