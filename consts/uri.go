package consts

const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"

	SchemeDelimiter = "://"

	MinPort = 1
	MaxPort = 65535
)

const (
	RuneAmp      = '&'
	RuneEquals   = '='
	RuneQuestion = '?'
	RuneHash     = '#'
	RuneFwdSlash = '/'
	RuneColon    = ':'
	RuneAt       = '@'
	RunePercent  = '%'
	RunePlus     = '+'
)

const ( // path segments that would escape or loop the hierarchy
	CurrentDir = "."
	ParentDir  = ".."
)
