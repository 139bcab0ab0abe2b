package bitable

// Record is one raw row from the remote table: an opaque id plus a fields
// map keyed by the table's (localized) column names. Field values keep
// whatever shape the remote sent; normalization happens elsewhere.
type Record struct {
	RecordID string         `json:"record_id"`
	Fields   map[string]any `json:"fields"`
}

type tokenRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"` // seconds
}

type searchData struct {
	Items     []Record `json:"items"`
	HasMore   bool     `json:"has_more"`
	PageToken string   `json:"page_token"`
	Total     int      `json:"total"`
}

type searchResponse struct {
	Code int        `json:"code"`
	Msg  string     `json:"msg"`
	Data searchData `json:"data"`
}

type createRequest struct {
	Fields map[string]any `json:"fields"`
}

type createData struct {
	Record Record `json:"record"`
}

type createResponse struct {
	Code int        `json:"code"`
	Msg  string     `json:"msg"`
	Data createData `json:"data"`
}
