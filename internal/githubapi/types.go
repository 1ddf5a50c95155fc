package githubapi

import "time"

// UserProfile is the subset of a GitHub user profile the pipeline reads.
type UserProfile struct {
	Login     string
	Name      string
	AvatarURL string
	CreatedAt time.Time
}

// LanguageEdge is one language of a repository with its byte size.
type LanguageEdge struct {
	Name  string
	Color *string
	Size  int64
}

// Repository is one owned, non-fork repository with its language breakdown.
type Repository struct {
	Name      string
	Stars     int64
	Forks     int64
	Languages []LanguageEdge
}

// RepositoriesResult is the fully paginated repository listing for one user.
type RepositoriesResult struct {
	Repositories      []Repository
	TotalPullRequests int64
	OpenIssues        int64
	ClosedIssues      int64
	Pages             int
}

// CalendarDay is one day of a contribution calendar.
type CalendarDay struct {
	Date              string
	ContributionCount int
}

// CalendarWeek is one week of a contribution calendar.
type CalendarWeek struct {
	ContributionDays []CalendarDay
}

// ContributionCalendar is the daily calendar of a contributions window.
type ContributionCalendar struct {
	TotalContributions int64
	Weeks              []CalendarWeek
}

// RepositoryContribution is the commit count one repository received in a window.
type RepositoryContribution struct {
	Owner         string
	Repository    string
	Contributions int64
}

// ContributionsCollection is GitHub's summary of one contributions window.
type ContributionsCollection struct {
	TotalCommitContributions            int64
	TotalIssueContributions             int64
	TotalRepositoryContributions        int64
	TotalPullRequestContributions       int64
	TotalPullRequestReviewContributions int64
	RestrictedContributionsCount        int64
	ContributionCalendar                ContributionCalendar
	CommitContributionsByRepository     []RepositoryContribution
}
