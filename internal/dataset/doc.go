// Package dataset keeps the local copies of the Active and Pending network
// datasets and decides, by timestamp order, which received copy replaces
// the local one. Stores persist each dataset as its packed timestamp
// followed by the opaque payload.
package dataset
