package tool

const fallbackFileName = "output.bin"

// SuggestedFileName maps a tool (and, for compress, its level) to the default
// download name of its artifact.
func SuggestedFileName(key Key, opts Options) string {
	switch key {
	case Merge:
		return "merged.pdf"
	case Split:
		return "split.pdf"
	case Compress:
		level := defaultLevel
		if o, ok := opts.(CompressOptions); ok && o.Level != "" {
			level = o.Level
		}
		return "compressed_" + string(level) + ".pdf"
	case ImageToPDF:
		return "images.pdf"
	case PDFToImage:
		return "pages.zip"
	case Unlock:
		return "unlocked.pdf"
	case Watermark:
		return "watermarked.pdf"
	default:
		return fallbackFileName
	}
}
