package hub_dto

type UserStatusResponse struct {
	UserID      string `json:"user_id"`
	Online      bool   `json:"online"`
	Connections int    `json:"connections"`
}

type ConnectionInfo struct {
	ClientID    string   `json:"client_id"`
	UserID      string   `json:"user_id"`
	Role        string   `json:"role"`
	Rooms       []string `json:"rooms"`
	ConnectedAt int64    `json:"connected_at"`
	LastSeen    int64    `json:"last_seen"`
	Dropped     int64    `json:"dropped"`
}

type DeliveryResponse struct {
	Reached int `json:"reached"`
}
