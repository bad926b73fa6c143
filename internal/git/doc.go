// Package git tracks the working copy against its remote branch and records
// local commits.
//
// Tracker uses go-git for fetch, ancestry walks and fast-forward resets.
// LocalCommitter shells out to the git binary because commits must honour the
// user's hooks, signing config and author settings exactly as the CLI does.
package git
