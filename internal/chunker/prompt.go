package chunker

// CaptionPrompt is sent with every extracted image.
const CaptionPrompt = "Describe this image as a police officer would, highlighting elements pertinent to a report, " +
	"investigation, crime scene, equipment, personnel, or procedural aspect. Focus on observable facts and " +
	"direct, professional language. Use clear, domain-relevant language. Avoid overly verbose or general descriptions."
