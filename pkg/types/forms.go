package types

type LoginForm struct {
	Email       string `form:"email"`
	Password    string `form:"password"`
	RedirectURI string `form:"redirect_uri"`
}

type RegisterForm struct {
	Name            string `form:"name" validate:"required"`
	Email           string `form:"email" validate:"required,email"`
	BloodGroup      string `form:"blood_group" validate:"required,bloodgroup"`
	Division        string `form:"division" validate:"required"`
	District        string `form:"district" validate:"required"`
	Password        string `form:"password" validate:"required"`
	ConfirmPassword string `form:"confirm_password" validate:"required"`
}

type ConfirmRegisterForm struct {
	Email string `form:"email"`
	Code  string `form:"code"`
}

type ProfileForm struct {
	Name       string `form:"name"`
	AvatarURL  string `form:"avatar"`
	BloodGroup string `form:"blood_group"`
	Division   string `form:"division"`
	District   string `form:"district"`
}

type StatusForm struct {
	Status string `form:"status"`
}

type RoleForm struct {
	Role string `form:"role"`
}

type BlogForm struct {
	Title   string `form:"title" validate:"required"`
	Content string `form:"content" validate:"required"`
}

// Funding amounts are whole currency units.
type FundingForm struct {
	Amount          int64  `form:"amount" validate:"gt=0"`
	PaymentIntentID string `form:"payment_intent_id" validate:"required"`
}

type FundingIntentForm struct {
	Amount int64 `form:"amount" validate:"gt=0"`
}
