// Package intake discovers submitted job files and turns them into queue
// jobs. The local scanner watches the inbox directory; the Dropbox scanner
// polls each authorized account's app folder. Both suppress duplicates of
// already-archived videos and retire malformed inputs immediately.
package intake
