package extract

import (
	"fmt"
	"strings"
)

func jobsPrompt(cleanedHTML, source string, maxJobs int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract the job postings from this HTML page of %s.\n\n", source)
	b.WriteString("For every posting return a JSON object with:\n")
	b.WriteString("- title: job title\n")
	b.WriteString("- company: company name\n")
	b.WriteString("- location: city/state or \"Remote\"\n")
	b.WriteString("- url: link to the posting (the href)\n")
	b.WriteString("- salary: salary if mentioned, else null\n")
	b.WriteString("- tags: array of technologies or skills mentioned\n\n")
	b.WriteString("Return ONLY a valid JSON array, no extra text.\n")
	fmt.Fprintf(&b, "Extract at most %d postings.\n\n", maxJobs)
	b.WriteString(`Example: [{"title":"Python Developer","company":"TechCorp","location":"Remote","url":"/jobs/123","salary":null,"tags":["Python","Django"]}]`)
	b.WriteString("\n\nHTML:\n")
	b.WriteString(cleanedHTML)
	return b.String()
}

func contactPrompt(pageText string) string {
	var b strings.Builder
	b.WriteString("Read this job posting and answer with ONE JSON object with the keys:\n")
	b.WriteString(`"email", "phone", "requirements" (array), "benefits" (array), `)
	b.WriteString(`"application_process", "salary", "work_mode" (remote, hybrid or on-site), "contract_type".`)
	b.WriteString("\nUse null for anything not stated. No extra text.\n\nPOSTING:\n")
	b.WriteString(pageText)
	return b.String()
}
