package classifier

// Prompt templates for the three adapter calls. The verdict grammar is
// parsed by ParseVerdict; keep the instructions in sync with it.

const classifyPrompt = `You are a project alignment monitor for a team chat channel.

Ground truth for this channel:
%s

Recent channel messages:
%s

A new message arrived from <@%s>:
%s

Reply with exactly one verdict line in the form ACTION|category: content
where ACTION is one of:
PASS - the message needs no response
ROUTE - someone else owns this; content is "<@target> | summary"
UPDATE - the message states a decision or fact the ground truth should record; content is the proposed entry
QUESTION - the message needs clarification before it is actionable; content is the question to ask
MISALIGN - the message contradicts the core objective; content is a short explanation

category is one word such as decision, blocker, question or general.
Use PASS unless you are confident.`

const continuationPrompt = `A conversation so far:
%s

New message:
%s

Is the new message a continuation of this conversation? Answer YES or NO.`

const compactionPrompt = `The decision log below has grown too long. Rewrite it as a concise
summary that preserves every decision that still matters. Do not invent
decisions. Reply with the summary only.

Decision log:
%s`
