package model

// Room is the client's local copy of one room's state, loaded over HTTP
// and then kept current by applying room update messages. JSON field
// names follow the server's document shape.
type Room struct {
	ID            string   `json:"id"`
	Title         string   `json:"Title"`
	Difficulty    int      `json:"Difficulty"`
	TimeLimit     int      `json:"TimeLimit"`
	InGame        bool     `json:"InGame"`
	MaxCapacity   int      `json:"MaxCapacity"`
	Owner         string   `json:"Owner"`
	Problem       string   `json:"Problem"`
	RandomProblem bool     `json:"RandomProblem"`
	ReqPassword   bool     `json:"ReqPassword"`
	Status        string   `json:"Status"`
	Users         []string `json:"Users"`
}

// Clone returns a copy of the room with its own member list, so the
// copy is unaffected by later updates to the original.
func (r *Room) Clone() Room {
	out := *r
	out.Users = append([]string(nil), r.Users...)
	return out
}

func (r *Room) HasUser(username string) bool {
	for _, u := range r.Users {
		if u == username {
			return true
		}
	}
	return false
}

// ProblemOverview is the lightweight problem reference shown in room
// settings and sent over CHANGE_PROBLEM updates.
type ProblemOverview struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Difficulty int    `json:"difficulty"`
	QuickDesc  string `json:"quickDesc"`
}

type Problem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Difficulty int    `json:"difficulty"`
	FullDesc   string `json:"fullDesc"`
	QuickDesc  string `json:"quickDesc"`
	TestCases  []any  `json:"testCases"`
}

// TestResult is what the code test/submit endpoints return.
type TestResult struct {
	PassCount    int    `json:"passCount"`
	TestCount    int    `json:"testCount"`
	ErrorMessage string `json:"errorMessage"`
}

type CreateRoomRequest struct {
	Title       string `json:"title"`
	MaxCapacity int    `json:"maxcapacity"`
	Difficulty  int    `json:"difficulty"`
	GameMode    int    `json:"gamemode"`
}
