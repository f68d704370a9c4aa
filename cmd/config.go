package cmd

import "time"

const (
	DEF_BAR_REFRESH = 150 * time.Millisecond
	DEF_LOCK_NAME   = "rtfetch.lock"
)

const DESCRIPTION = `
rtfetch pulls the files of completed torrents from a seedbox over
FTPS (or SFTP) into local folders. Large files are fetched as several
byte ranges in parallel and only appear under their final name once
every byte has arrived.
`

const (
	FetchDescription = `The fetch command reads a JSON list of torrent jobs, plans
the remote path of every file and downloads what is not already
present locally with the same size.

A job is processed only when it is complete, and counts as done
only when every one of its files was downloaded or skipped.

Example:
        rtfetch fetch --jobs jobs.json
        rtfetch fetch --dry-run --jobs - < jobs.json

`
	ResolveDescription = `The resolve command looks up remote paths the way fetch
does and prints the file each one resolves to together with its size.
Useful to check ftp_root and path mapping settings.

Example:
        rtfetch resolve "/downloads/Some Show/S01E01.mkv"

`
	SecretDescription = `The secret command stores or removes the server password in
the OS keyring (or the fallback secret directory when no keyring is
available). Reference it from the config as "keyring:<item>".

Example:
        rtfetch secret set seedbox < password.txt
        rtfetch secret delete seedbox

`
)
