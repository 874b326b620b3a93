// Package upload sends media to the hosted media service.
//
// Files are posted as multipart forms carrying the file, an unsigned upload
// preset and a destination folder to
//
//	{base}/{cloud}/{resource_type}/upload
//
// where resource_type is image or video. Images default to the nelf/flyers
// folder and videos to nelf/videos.
package upload
