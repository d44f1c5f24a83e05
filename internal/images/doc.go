// Package images downloads listing photos into per-listing directories
// and inspects them for EXIF metadata. Advertiser photos frequently
// keep GPS coordinates and camera data; those surface in the run report
// as privacy findings.
package images
