/*
Package dice implements the percentile (d100) probability engine.

Every roll is drawn from a Roller seeded with an explicit int64, so a check
resolved with the same seed and the same request always produces the same
RollResult. The package has no global random state.

# Percentile checks

A check draws one units digit (0-9) and 1+|BonusDice| tens digits (0-9).
Bonus dice keep the lowest tens digit, penalty dice keep the highest. A roll
of 00 reads as 100. The outcome Tier is evaluated in this precedence:

  - 1 is always a critical success.
  - 100, or 96-99 with a skill below 50, is a fumble.
  - Above the difficulty target is a failure.
  - At or below skill/5 is an extreme success, at or below skill/2 a hard
    success, otherwise a regular success.

# Formulas

Damage and sanity-loss formulas are additive terms of the form NdS or a bare
integer, e.g. "1d6", "2d6+1", "1d4-1", "1d6+1d4". The sum is never negative.
*/
package dice
