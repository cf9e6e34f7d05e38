package catalog

// Mod is the subset of a catalog project the client uses.
type Mod struct {
	ID            int          `json:"id"`
	GameID        int          `json:"gameId"`
	Name          string       `json:"name"`
	Slug          string       `json:"slug"`
	Summary       string       `json:"summary"`
	DownloadCount float64      `json:"downloadCount"`
	MainFileID    int          `json:"mainFileId"`
	Links         ModLinks     `json:"links"`
	Authors       []Author     `json:"authors"`
	LatestFiles   []File       `json:"latestFiles"`
	DateModified  string       `json:"dateModified"`
	Categories    []Category   `json:"categories"`
	FilesIndexes  []FilesIndex `json:"latestFilesIndexes"`
}

type ModLinks struct {
	WebsiteURL string `json:"websiteUrl"`
	SourceURL  string `json:"sourceUrl"`
}

type Author struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type FilesIndex struct {
	GameVersion string `json:"gameVersion"`
	FileID      int    `json:"fileId"`
	Filename    string `json:"filename"`
	ReleaseType int    `json:"releaseType"`
}

// File is one downloadable file of a mod.
type File struct {
	ID           int      `json:"id"`
	ModID        int      `json:"modId"`
	DisplayName  string   `json:"displayName"`
	FileName     string   `json:"fileName"`
	ReleaseType  int      `json:"releaseType"`
	FileDate     string   `json:"fileDate"`
	FileLength   int64    `json:"fileLength"`
	DownloadURL  string   `json:"downloadUrl"`
	GameVersions []string `json:"gameVersions"`
	IsAvailable  bool     `json:"isAvailable"`
}

// ReleaseTypeName maps the numeric release type to its label.
func (f File) ReleaseTypeName() string {
	switch f.ReleaseType {
	case 1:
		return "release"
	case 2:
		return "beta"
	case 3:
		return "alpha"
	default:
		return "unknown"
	}
}

type Pagination struct {
	Index       int `json:"index"`
	PageSize    int `json:"pageSize"`
	ResultCount int `json:"resultCount"`
	TotalCount  int `json:"totalCount"`
}

// FilesPage is one page of GetModFiles results.
type FilesPage struct {
	Data       []File      `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// FilesQuery filters GetModFiles. Zero values are omitted from the request,
// except that Index is always sent alongside a PageSize.
type FilesQuery struct {
	PageSize      int
	Index         int
	GameVersion   string
	ModLoaderType int
}

type envelope[T any] struct {
	Data T `json:"data"`
}
