package mcpserver

// NoteFormatContract describes how notes are written and how their tags
// and thoughts are derived.
const NoteFormatContract = `# notemind Note Format

Notes are UTF-8 Markdown files (` + "`" + `.md` + "`" + `) anywhere under the corpus root.
A note's identity is its path; its name is the file name without extension.

## Voice notes

The ` + "`" + `save_note` + "`" + ` tool writes notes in this layout, named after the time they were saved
(` + "`" + `2006-01-02 15-04-05.md` + "`" + `):

` + "```" + `markdown
#voice #tag-one #tag-two

---
Dictated text, already transcribed and punctuated.

---
` + "```" + `

- ` + "`" + `#voice` + "`" + ` is always present; ` + "`" + `#random` + "`" + ` is added when no other tag was chosen.
- A leading keyword becomes a tag and is removed from the text:
  idea/идея → #ideas, project/проект → #project, life/жизнь → #life, diary/дневник → #diary.

## Tags

A tag is ` + "`" + `#` + "`" + ` followed by letters, digits or underscores, ended by a space or a newline.
Everything from a ` + "`" + `#` + "`" + ` to the end of its line is left out of the searchable text, so keep
tags on their own line.

## Thoughts

Each sentence and each paragraph of the remaining text becomes a searchable thought once it has
at least 10 letters and 3 words. Links are replaced by a placeholder; a line that is only a link is
dropped. Notes shorter than 40 characters are not indexed.
`
