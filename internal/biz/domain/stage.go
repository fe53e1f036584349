package domain

// Stage is the current step of a user's guided conversation
type Stage int

const (
	StageMainMenu Stage = iota
	StageRegisterName
	StageRegisterPhone
	StageRegisterAddress
	StageRegisterConfirm
	StageSelectCategory
	StageSelectSubcategory
	StageCustomTag
	StageProductName
	StageProductDescription
	StageProductPrice
	StageProductImage
	StageSchedulePostDecision
	StageSchedulePostTime
	StageContactMessage
)

var stageNames = map[Stage]string{
	StageMainMenu:             "main_menu",
	StageRegisterName:         "register_name",
	StageRegisterPhone:        "register_phone",
	StageRegisterAddress:      "register_address",
	StageRegisterConfirm:      "register_confirm",
	StageSelectCategory:       "select_category",
	StageSelectSubcategory:    "select_subcategory",
	StageCustomTag:            "custom_tag",
	StageProductName:          "product_name",
	StageProductDescription:   "product_description",
	StageProductPrice:         "product_price",
	StageProductImage:         "product_image",
	StageSchedulePostDecision: "schedule_post_decision",
	StageSchedulePostTime:     "schedule_post_time",
	StageContactMessage:       "contact_message",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsRegistration reports whether the stage belongs to the registration flow
func (s Stage) IsRegistration() bool {
	switch s {
	case StageRegisterName, StageRegisterPhone, StageRegisterAddress, StageRegisterConfirm:
		return true
	}
	return false
}

// IsListingFlow reports whether the stage belongs to listing creation
func (s Stage) IsListingFlow() bool {
	return s >= StageSelectCategory && s <= StageSchedulePostDecision
}
