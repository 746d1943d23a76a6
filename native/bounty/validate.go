package bounty

import (
	"net/url"
	"strings"
)

// ValidateCreateArgs checks the reward and the descriptive metadata. The
// metadata is never interpreted, only bounded and shape-checked.
func ValidateCreateArgs(args CreateArgs) error {
	if args.RewardAmount == 0 {
		return fail(ErrInvalidArgument, "reward amount must be greater than 0")
	}
	if args.BountyID == 0 {
		return fail(ErrInvalidArgument, "bounty id must be greater than 0")
	}
	if err := validateIssueURL(args.GithubIssueURL); err != nil {
		return err
	}
	if err := validateRepoName(args.RepoName); err != nil {
		return err
	}
	if args.IssueNumber == 0 {
		return fail(ErrInvalidArgument, "issue number must be greater than 0")
	}
	return nil
}

func validateIssueURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fail(ErrInvalidArgument, "github issue url is required")
	}
	if len(raw) > MaxGithubIssueURLLen {
		return fail(ErrInvalidArgument, "github issue url is too long (max %d bytes)", MaxGithubIssueURLLen)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fail(ErrInvalidArgument, "github issue url: %v", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fail(ErrInvalidArgument, "github issue url must be http(s)")
	}
	if parsed.Host == "" {
		return fail(ErrInvalidArgument, "github issue url has no host")
	}
	return nil
}

func validateRepoName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fail(ErrInvalidArgument, "repository name is required")
	}
	if len(name) > MaxRepoNameLen {
		return fail(ErrInvalidArgument, "repository name is too long (max %d bytes)", MaxRepoNameLen)
	}
	owner, repo, ok := strings.Cut(name, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") || strings.ContainsAny(name, " \t\r\n") {
		return fail(ErrInvalidArgument, "repository name must look like owner/name")
	}
	return nil
}
