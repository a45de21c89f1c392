package types

type NavbarData struct {
	IsAuthenticated bool
	UserEmail       string
	UserName        string
	AvatarURL       string
	Role            Role
}

type NavbarDataSetter interface {
	SetNavbarData(data NavbarData)
}

type BasePageData struct {
	Title  string
	Navbar NavbarData
}

func (d *BasePageData) SetNavbarData(data NavbarData) {
	d.Navbar = data
}

type HomePageData struct {
	BasePageData
	Notice      string
	Error       string
	BloodGroups []BloodGroup
}

type LoginPageData struct {
	BasePageData
	Message     string
	Error       string
	Email       string
	RedirectURI string
	PopupURL    string
}

type RegisterPageData struct {
	BasePageData
	Name        string
	Email       string
	BloodGroup  string
	Division    string
	District    string
	BloodGroups []BloodGroup
	Error       string
	FieldErrors map[string]string
}

type ConfirmRegisterPageData struct {
	BasePageData
	Email   string
	Error   string
	Message string
}

type LoadingPageData struct {
	BasePageData
	RetryAfterSec int
}

type DashboardPageData struct {
	BasePageData
	Profile *UserProfile
	Notice  string
	Error   string
	Links   []DashboardLink
}

type DashboardLink struct {
	Label string
	Href  string
}
