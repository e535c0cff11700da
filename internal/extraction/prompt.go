package extraction

const ocrInstruction = `Transcribe all text in this image exactly as written.
Preserve the layout, line breaks and alignment as closely as you can.
Interpret handwriting as faithfully as possible and keep question numbers next to their answers.
Mark text you cannot read with [unclear].
Return only the transcription. Do not add commentary or any text that is not visible in the image.`
