package domain

// Title is the reshaped list item returned by catalog browse endpoints.
type Title struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title,omitempty"`
	Name             string  `json:"name,omitempty"`
	Overview         string  `json:"overview"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path,omitempty"`
	VoteAverage      float64 `json:"vote_average"`
	ReleaseDate      string  `json:"release_date,omitempty"`
	FirstAirDate     string  `json:"first_air_date,omitempty"`
	OriginalLanguage string  `json:"original_language,omitempty"`
	Type             Kind    `json:"_type"`
}

// DisplayTitle returns the movie title or the show name.
func (t Title) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return t.Name
}

// Genre is a catalog genre.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TitleDetails holds the detail record of one catalog item.
type TitleDetails struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title,omitempty"`
	Name         string  `json:"name,omitempty"`
	Overview     string  `json:"overview"`
	Tagline      string  `json:"tagline,omitempty"`
	PosterPath   string  `json:"poster_path"`
	BackdropPath string  `json:"backdrop_path,omitempty"`
	VoteAverage  float64 `json:"vote_average"`
	ReleaseDate  string  `json:"release_date,omitempty"`
	FirstAirDate string  `json:"first_air_date,omitempty"`
	Runtime      int     `json:"runtime,omitempty"`
	Genres       []Genre `json:"genres"`
}

// DisplayTitle returns the movie title or the show name.
func (d TitleDetails) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

// CastMember is one billed performer.
type CastMember struct {
	Name      string `json:"name"`
	Character string `json:"character,omitempty"`
}

// CrewMember is one credited crew role.
type CrewMember struct {
	Name string `json:"name"`
	Job  string `json:"job"`
}

// Credits groups cast and crew.
type Credits struct {
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// Director returns the first credited director, if any.
func (c *Credits) Director() string {
	if c == nil {
		return ""
	}
	for _, member := range c.Crew {
		if member.Job == "Director" {
			return member.Name
		}
	}
	return ""
}

// Details is the aggregate served by the details endpoint. A nil Details field
// means the item could not be resolved upstream.
type Details struct {
	Details    *TitleDetails `json:"details,omitempty"`
	Credits    *Credits      `json:"credits,omitempty"`
	TrailerKey string        `json:"trailerKey,omitempty"`
	OTTLink    string        `json:"ottLink,omitempty"`
}

// BrowseQuery captures the filters accepted by the browse endpoint.
type BrowseQuery struct {
	Kind     Kind
	Page     int
	Search   string
	Genre    string
	Rating   string
	Language string
	Mood     string
}
