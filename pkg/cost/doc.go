/*
Package cost tracks per-instance spend, budgets and optimization
recommendations.

Entries attribute an amount to an instance, category and period. Totals
roll up hourly, daily or monthly. Budgets limit fleet, team or instance
spend per day, week or month; each crossing of a configured threshold
fires exactly one alert per billing period. Spend deviating more than
50% from the preceding comparable window is recorded as an anomaly.
*/
package cost
